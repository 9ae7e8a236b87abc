// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for zxctl. The configuration is set by flags to the command line, with
// defaults optionally read from a TOML file.
package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gvisor.dev/zircon/pkg/log"
)

// Config holds configuration that is shared by all subcommands.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// LogFilename is the filename to log to, if not empty. The %COMMAND%,
	// %PID% and %TIMESTAMP% variables are expanded.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format: text, json, json-k8s or logrus.
	LogFormat string `flag:"log-format" toml:"log_format"`

	// Threads is the number of threads the benchmarks start.
	Threads int `flag:"threads" toml:"threads"`

	// Iterations is the number of rounds each benchmark thread runs.
	Iterations int `flag:"iterations" toml:"iterations"`

	// Timeout bounds every blocking wait in the benchmarks.
	Timeout time.Duration `flag:"timeout" toml:"timeout"`

	// MetricsFormat is how metrics are printed: prometheus or values.
	MetricsFormat string `flag:"metrics-format" toml:"metrics_format"`
}

// configFileFlag names the flag holding the TOML file path. It has no field
// in Config.
const configFileFlag = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String(configFileFlag, "", "TOML file with default values for the flags below. Flags given on the command line take precedence.")

	// Debugging flags.
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr. The following variables are available: %TIMESTAMP%, %COMMAND%, %PID%.")
	flagSet.String("log-format", "text", "log format: text (default), json, json-k8s or logrus.")

	// Benchmark flags.
	flagSet.Int("threads", 4, "number of threads started by benchmarks.")
	flagSet.Int("iterations", 1000, "number of rounds run by each benchmark thread.")
	flagSet.Duration("timeout", 10*time.Second, "deadline for every blocking wait in benchmarks.")
	flagSet.String("metrics-format", "prometheus", "metric output format: prometheus (default) or values.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags. Flags that were not set on the command line take their value from
// the config file, if one was given, and then from the flag default.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		obj.Field(i).Set(reflect.ValueOf(fl.Value.(flag.Getter).Get()))
	}

	if fl := flagSet.Lookup(configFileFlag); fl != nil && fl.Value.String() != "" {
		if err := conf.loadFile(flagSet, fl.Value.String()); err != nil {
			return nil, err
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// loadFile decodes the TOML file at path into c, then reapplies the flags
// that were set explicitly.
func (c *Config) loadFile(flagSet *flag.FlagSet, path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("decoding config file %q: %w", path, err)
	}
	var err error
	flagSet.Visit(func(fl *flag.Flag) {
		if err != nil || fl.Name == configFileFlag {
			return
		}
		err = c.set(fl)
	})
	return err
}

// set copies the value of fl into the field tagged with its name.
func (c *Config) set(fl *flag.Flag) error {
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok && name == fl.Name {
			obj.Field(i).Set(reflect.ValueOf(fl.Value.(flag.Getter).Get()))
			return nil
		}
	}
	return fmt.Errorf("flag %q not found", fl.Name)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "text", "json", "json-k8s", "logrus":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', 'json-k8s' or 'logrus'", c.LogFormat)
	}
	switch c.MetricsFormat {
	case "prometheus", "values":
	default:
		return fmt.Errorf("invalid metrics format %q, must be 'prometheus' or 'values'", c.MetricsFormat)
	}
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
// Defaults are omitted.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == fl.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", fl.Name, val))
	}
	return rv
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t%s", f)
	}
}

func getVal(field reflect.Value) string {
	if str, ok := field.Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
