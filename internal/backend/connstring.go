package backend

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"datacenter/internal/config"

	"github.com/go-sql-driver/mysql"
)

// ConnView is the typed view of a descriptor's connection block.
type ConnView struct {
	Host         string            `mapstructure:"host"`
	Port         int               `mapstructure:"port"`
	Database     string            `mapstructure:"database"`
	Username     string            `mapstructure:"username"`
	Password     string            `mapstructure:"password"`
	DatabasePath string            `mapstructure:"database_path"`
	BaseURL      string            `mapstructure:"base_url"`
	Endpoint     string            `mapstructure:"endpoint"`
	Scheme       string            `mapstructure:"scheme"`
	VHost        string            `mapstructure:"vhost"`
	Options      map[string]string `mapstructure:"options"`
}

// Addr joins host and port, using def when no port is configured.
func (c ConnView) Addr(def int) string {
	port := c.Port
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// DecodeConnection decodes the connection block of ds.
func DecodeConnection(ds config.DataSource) (ConnView, error) {
	var c ConnView
	err := DecodeView(ds.Connection, &c)
	return c, err
}

const redacted = "xxxxx"

var connectionFormatters = map[string]func(c ConnView, redact bool) string{
	"postgresql": func(c ConnView, redact bool) string {
		return urlString("postgres", c, 5432, "/"+c.Database, redact)
	},
	"mysql": func(c ConnView, redact bool) string {
		cfg := mysql.NewConfig()
		cfg.User = c.Username
		cfg.Passwd = password(c, redact)
		cfg.Net = "tcp"
		cfg.Addr = c.Addr(3306)
		cfg.DBName = c.Database
		cfg.ParseTime = true
		if len(c.Options) > 0 {
			cfg.Params = c.Options
		}
		return cfg.FormatDSN()
	},
	"sqlite": func(c ConnView, _ bool) string {
		return c.DatabasePath
	},
	"mongodb": func(c ConnView, redact bool) string {
		return urlString("mongodb", c, 27017, "/"+c.Database, redact)
	},
	"redis": func(c ConnView, redact bool) string {
		db := c.Database
		if db == "" {
			db = "0"
		}
		return urlString("redis", c, 6379, "/"+db, redact)
	},
	"elasticsearch": func(c ConnView, redact bool) string {
		s := c.Scheme
		if s == "" {
			s = "http"
		}
		return urlString(s, c, 9200, "", redact)
	},
	"rabbitmq": func(c ConnView, redact bool) string {
		return urlString("amqp", c, 5672, "/"+c.VHost, redact)
	},
	"rest_api": func(c ConnView, _ bool) string {
		return c.BaseURL
	},
	"graphql": func(c ConnView, _ bool) string {
		return c.Endpoint
	},
}

// ConnectionString derives the driver connection string for ds. With
// redact set, passwords are masked so the result is safe to print.
func ConnectionString(ds config.DataSource, redact bool) (string, error) {
	format, ok := connectionFormatters[ds.Type]
	if !ok {
		return "", &UnsupportedTypeError{Source: ds.Name, Type: ds.Type, Available: Types()}
	}
	c, err := DecodeConnection(ds)
	if err != nil {
		return "", fmt.Errorf("data source %q: %w", ds.Name, err)
	}
	return format(c, redact), nil
}

func password(c ConnView, redact bool) string {
	if redact && c.Password != "" {
		return redacted
	}
	return c.Password
}

func urlString(s string, c ConnView, defPort int, path string, redact bool) string {
	u := url.URL{Scheme: s, Host: c.Addr(defPort), Path: path}
	switch {
	case c.Username != "" && c.Password != "":
		u.User = url.UserPassword(c.Username, password(c, redact))
	case c.Username != "":
		u.User = url.User(c.Username)
	case c.Password != "":
		u.User = url.UserPassword("", password(c, redact))
	}
	if len(c.Options) > 0 {
		q := url.Values{}
		for k, v := range c.Options {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
