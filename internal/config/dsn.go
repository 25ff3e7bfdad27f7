package config

import (
	"net"
	"strconv"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// DSNValue returns the audit database DSN, assembling it from the discrete
// fields when no DSN is given.
func (c AuditConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultAuditHost
	}
	port := c.Port
	if port == 0 {
		port = defaultAuditPort
	}
	user := strings.TrimSpace(c.User)
	if user == "" {
		user = defaultAuditUser
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = defaultAuditName
	}
	charset := strings.TrimSpace(c.Charset)
	if charset == "" {
		charset = defaultAuditCharset
	}

	dsn := mysqlDriver.NewConfig()
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	dsn.User = user
	dsn.Passwd = c.Password
	dsn.DBName = name
	dsn.ParseTime = true
	dsn.Params = map[string]string{"charset": charset}
	for key, value := range c.Params {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			dsn.Params[k] = v
		}
	}
	return dsn.FormatDSN()
}
