/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */
package misc

import (
	"os"
	"sort"
	"strings"
)

var secretsMap = map[string]string{}

// SetSecret registers a secret that isn't in the environment (tests, injected config).
func SetSecret(key, value string) {
	secretsMap[key] = value
}

// SecretKeys returns the names of every secret with the given prefix, sorted.
func SecretKeys(prefix string) []string {
	var uniqKeys = map[string]bool{}
	for _, envVal := range os.Environ() {
		key := envVal[0:strings.IndexByte(envVal, '=')]
		if strings.HasPrefix(key, prefix) {
			uniqKeys[key] = true
		}
	}
	for k := range secretsMap {
		if strings.HasPrefix(k, prefix) {
			uniqKeys[k] = true
		}
	}
	var retStrings []string
	for k := range uniqKeys {
		retStrings = append(retStrings, k)
	}
	sort.Strings(retStrings)
	return retStrings
}

func GetSecret(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return secretsMap[key]
}
