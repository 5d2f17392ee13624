// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string

	// StorePath is the path of the local bbolt store file.
	StorePath string

	// DatabaseDSN, when set, selects the PostgreSQL persistence backend
	// instead of the local store file.
	DatabaseDSN string

	// DriveClientID and DriveClientSecret configure the Drive OAuth app.
	DriveClientID     string
	DriveClientSecret string

	// S3Bucket, S3Prefix and S3Region configure the S3 sync backend;
	// the backend is registered only when S3Bucket is set.
	S3Bucket string
	S3Prefix string
	S3Region string

	// Config is the path to the config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Addr, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.StorePath, "s", "collections.db", "path to the local store file")
	flag.StringVar(&options.DatabaseDSN, "d", "", "postgres dsn (overrides the local store file)")
	flag.StringVar(&options.DriveClientID, "drive-client-id", "", "Drive OAuth client id")
	flag.StringVar(&options.DriveClientSecret, "drive-client-secret", "", "Drive OAuth client secret")
	flag.StringVar(&options.S3Bucket, "s3-bucket", "", "S3 bucket for the s3 sync backend")
	flag.StringVar(&options.S3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	flag.StringVar(&options.S3Region, "s3-region", "", "AWS region for the s3 sync backend")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Addr = serverAddress
	}
	if storePath := os.Getenv("STORE_PATH"); storePath != "" {
		options.StorePath = storePath
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}

	return options
}
