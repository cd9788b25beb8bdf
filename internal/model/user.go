package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// PasswdPath is the system account database.
const PasswdPath = "/etc/passwd"

// ErrUserNotFound is returned when a user has no passwd entry.
var ErrUserNotFound = errors.New("user not found")

// User is a login account.
type User struct {
	Name     string `cbor:"name"`
	RealName string `cbor:"real_name"`
	UID      int    `cbor:"uid"`
	GID      int    `cbor:"gid"`
	Home     string `cbor:"home"`
	Shell    string `cbor:"shell"`
}

// DisplayName returns the real name, falling back to the login name.
func (u User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// UserFilter selects which accounts the greeter lists.
type UserFilter struct {
	MinimumUID int
	MaximumUID int
	HideUsers  []string
	HideShells []string
}

// Match reports whether u passes the filter.
func (f UserFilter) Match(u User) bool {
	if u.UID < f.MinimumUID || (f.MaximumUID > 0 && u.UID > f.MaximumUID) {
		return false
	}
	if slices.Contains(f.HideUsers, u.Name) {
		return false
	}
	return !slices.Contains(f.HideShells, u.Shell)
}

// ParsePasswd parses passwd(5) formatted data. Malformed lines are skipped.
func ParsePasswd(r io.Reader) ([]User, error) {
	var users []User
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) != 7 {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		realName, _, _ := strings.Cut(fields[4], ",")
		users = append(users, User{
			Name:     fields[0],
			RealName: realName,
			UID:      uid,
			GID:      gid,
			Home:     fields[5],
			Shell:    fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passwd: %w", err)
	}
	return users, nil
}

// LoadUsers reads the accounts in path that pass filter, sorted by name.
func LoadUsers(path string, filter UserFilter) ([]User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passwd: %w", err)
	}
	defer f.Close()

	all, err := ParsePasswd(f)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(all))
	for _, u := range all {
		if filter.Match(u) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// LookupUser finds name in path regardless of any filter.
func LookupUser(path, name string) (*User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passwd: %w", err)
	}
	defer f.Close()

	users, err := ParsePasswd(f)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Name == name {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUserNotFound, name)
}
