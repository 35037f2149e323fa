package config

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

var (
	errNoEnvArg   = errors.New("no env arg")
	ErrInvalidArg = errors.New("invalid arguments")
)

// loadEnvFile reads the first line of the file named by the "_FILE"
// indirection variable; lets secrets be supplied as a file path instead of
// a literal value in the process environment.
func loadEnvFile(nm string) (r string, err error) {
	fin, err := os.Open(nm)
	if err != nil {
		return "", err
	}
	defer fin.Close()
	s := bufio.NewScanner(fin)
	s.Scan()
	if err = s.Err(); err != nil {
		return "", err
	}
	return s.Text(), nil
}

func loadEnv(nm string) (string, error) {
	if s, ok := os.LookupEnv(nm); ok {
		return s, nil
	}
	if fp, ok := os.LookupEnv(nm + "_FILE"); ok {
		return loadEnvFile(fp)
	}
	return "", errNoEnvArg
}

// String reads envName, falling back to def if unset.
func String(envName, def string) (string, error) {
	v, err := loadEnv(envName)
	if err != nil {
		if err == errNoEnvArg {
			return def, nil
		}
		return "", err
	}
	return v, nil
}

// Int reads envName as an int, falling back to def if unset.
func Int(envName string, def int) (int, error) {
	v, err := loadEnv(envName)
	if err != nil {
		if err == errNoEnvArg {
			return def, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Bool reads envName as a bool, falling back to def if unset.
func Bool(envName string, def bool) (bool, error) {
	v, err := loadEnv(envName)
	if err != nil {
		if err == errNoEnvArg {
			return def, nil
		}
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, err
	}
	return b, nil
}
