package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	PSTFile  string `validate:"required,file"`
	GRPCAddr string `validate:"omitempty,hostname_port"`
	HTTPAddr string `validate:"omitempty,hostname_port"`
	Token    string
	LogFile  string
	LogLevel string `validate:"oneof=debug info warn error"`
	Lenient  bool
	MMap     bool
	Workers  int `validate:"min=1"`
}

// NewConfig parses the process flags. Every flag defaults to the environment
// variable of the same name.
func NewConfig() (*Config, error) {
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse registers the flags on fs and parses args.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	c := &Config{}
	fs.StringVar(&c.PSTFile, "PST_FILE", env("PST_FILE", ""), "container file")
	fs.StringVar(&c.GRPCAddr, "GRPC_ADDR", env("GRPC_ADDR", "127.0.0.1:3200"), "gRPC listen or dial address")
	fs.StringVar(&c.HTTPAddr, "HTTP_ADDR", env("HTTP_ADDR", "127.0.0.1:3201"), "HTTP listen address, empty to disable")
	fs.StringVar(&c.Token, "TOKEN", env("TOKEN", ""), "bearer token required by the servers, empty to disable")
	fs.StringVar(&c.LogFile, "LOG_FILE", env("LOG_FILE", ""), "rotated log file, empty for stderr")
	fs.StringVar(&c.LogLevel, "LOG_LEVEL", env("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.BoolVar(&c.Lenient, "LENIENT", envBool("LENIENT", false), "skip values that fail to decode")
	fs.BoolVar(&c.MMap, "MMAP", envBool("MMAP", false), "memory-map the container")
	fs.IntVar(&c.Workers, "WORKERS", envInt("WORKERS", 4), "verifier workers")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the fields a command needs. Commands that do not read a
// local container skip the file check with except = "PSTFile".
func (c *Config) Validate(except ...string) error {
	const msg = "Validate:"
	v := validator.New(validator.WithRequiredStructEnabled())
	var err error
	if len(except) > 0 {
		err = v.StructExcept(c, except...)
	} else {
		err = v.Struct(c)
	}
	if err != nil {
		return fmt.Errorf("%s %w", msg, err)
	}
	return nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}
