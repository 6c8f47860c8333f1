/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */

package misc

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads .env.local then .env from the working directory. Values already
// in the environment win; missing files are ignored.
func LoadEnvSettings(log *slog.Logger) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			Debugf(log, "loaded env file:%s", name)
		}
	}
}

// LoadNamedEnvFile loads a specific env file, which must exist.
func LoadNamedEnvFile(log *slog.Logger, name string) error {
	Infof(log, "loading env file:%s", name)
	return godotenv.Load(name)
}
