package influxstore

import (
	"fmt"
	"strings"

	client "github.com/influxdata/influxdb/client/v2"
	"github.com/rs/zerolog"
)

// RetentionPolicy describes an InfluxDB retention policy.
type RetentionPolicy struct {
	Name          string
	Duration      string
	Replication   int
	ShardDuration string
	Default       bool
}

// DefaultRetentionPolicy keeps a year of data in weekly shards.
var DefaultRetentionPolicy = RetentionPolicy{
	Name:          "one_year",
	Duration:      "52w",
	Replication:   1,
	ShardDuration: "1w",
	Default:       true,
}

// Provision makes sure database exists. A newly created database also gets
// rp as its retention policy; an existing database is left untouched.
func Provision(c Client, database string, rp RetentionPolicy, logger zerolog.Logger) error {
	names, err := ListDatabases(c)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == database {
			logger.Info().Str("database", database).Msg("InfluxDB database already exists.")
			return nil
		}
	}

	if err := exec(c, "CREATE DATABASE "+quoteIdent(database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", database, err)
	}
	logger.Info().Str("database", database).Msg("Created InfluxDB database.")

	if rp.Name == "" {
		return nil
	}
	if err := exec(c, rp.createStatement(database)); err != nil {
		return fmt.Errorf("failed to create retention policy %s on %s: %w", rp.Name, database, err)
	}
	logger.Info().Str("database", database).Str("retention_policy", rp.Name).Msg("Created InfluxDB retention policy.")
	return nil
}

// ListDatabases returns the names of all databases on the server.
func ListDatabases(c Client) ([]string, error) {
	resp, err := c.Query(client.NewQuery("SHOW DATABASES", "", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	var names []string
	for _, result := range resp.Results {
		for _, row := range result.Series {
			for _, values := range row.Values {
				if len(values) == 0 {
					continue
				}
				if name, ok := values[0].(string); ok {
					names = append(names, name)
				}
			}
		}
	}
	return names, nil
}

func (rp RetentionPolicy) createStatement(database string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE RETENTION POLICY %s ON %s DURATION %s REPLICATION %d",
		quoteIdent(rp.Name), quoteIdent(database), rp.Duration, rp.Replication)
	if rp.ShardDuration != "" {
		fmt.Fprintf(&b, " SHARD DURATION %s", rp.ShardDuration)
	}
	if rp.Default {
		b.WriteString(" DEFAULT")
	}
	return b.String()
}

func exec(c Client, statement string) error {
	resp, err := c.Query(client.NewQuery(statement, "", ""))
	if err != nil {
		return err
	}
	return resp.Error()
}

func quoteIdent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
