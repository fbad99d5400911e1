package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/getsops/sops/v3/decrypt"
	ddd "github.com/paulvitic/ddd-projector"
)

var log = ddd.NewLogger().Named("config")

// Properties loads properties[.profile].json, or its SOPS encrypted sibling
// properties[.profile].enc.json, from the working directory. Environment
// variables named in `env` tags override the file.
func Properties[T any](profile ...string) (*T, error) {
	return PropertiesIn[T](".", profile...)
}

// PropertiesIn is Properties reading from dir.
func PropertiesIn[T any](dir string, profile ...string) (*T, error) {
	fileName, err := fileNameFor(profile...)
	if err != nil {
		return nil, err
	}
	filePath, isFileEncrypted, err := verifyFilePath(dir, fileName)
	if err != nil {
		return nil, err
	}
	data, err := readData(filePath, isFileEncrypted)
	if err != nil {
		return nil, err
	}

	config := new(T)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filePath, err)
	}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("apply environment to %s: %w", filePath, err)
	}
	return config, nil
}

func readData(filePath string, isFileEncrypted bool) ([]byte, error) {
	log.Info("Loading config file %s", filePath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", filePath, err)
	}
	if isFileEncrypted {
		return decryptData(filePath, data)
	}
	return data, nil
}

func decryptData(filePath string, data []byte) ([]byte, error) {
	decryptedData, err := decrypt.Data(data, "json")
	if err != nil {
		return nil, fmt.Errorf("decrypt config file %s: %w", filePath, err)
	}
	return decryptedData, nil
}

// verifyFilePath prefers the plain file and falls back to the encrypted one.
func verifyFilePath(dir, fileName string) (string, bool, error) {
	const fileExt = ".json"
	const encryptExt = ".enc"

	filePath := filepath.Join(dir, fileName+fileExt)
	if _, err := os.Stat(filePath); err == nil {
		return filePath, false, nil
	}

	encryptedPath := filepath.Join(dir, fileName+encryptExt+fileExt)
	if _, err := os.Stat(encryptedPath); err != nil {
		return "", false, fmt.Errorf("no config file %s or %s: %w", filePath, encryptedPath, err)
	}
	return encryptedPath, true, nil
}

func fileNameFor(profile ...string) (string, error) {
	name := "properties"

	if len(profile) == 0 {
		return name, nil
	}

	if len(profile) > 1 {
		return "", errors.New("only one profile suffix is allowed")
	}

	if profile[0] == "" {
		return name, nil
	}

	return name + "." + profile[0], nil
}
