// Package identity provides the machine identity used to provision anonymous users.
package identity

import (
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"
)

// Machine describes the host the agent runs on.
type Machine struct {
	Username string
	Hostname string
	Timezone string
	OS       string
}

// Detect reads the machine identity from the operating system. Lookups that
// fail leave the corresponding field empty.
func Detect() Machine {
	return Machine{
		Username: detectUsername(),
		Hostname: detectHostname(),
		Timezone: detectTimezone(),
		OS:       runtime.GOOS,
	}
}

func detectUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return stripDomain(u.Username)
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// stripDomain drops a Windows DOMAIN\ prefix.
func stripDomain(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

func detectHostname() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

func detectTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
	}
	name, _ := time.Now().Zone()
	return name
}
