package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var durationType = reflect.TypeOf(time.Duration(0))

// LoadEnv loads environment variables into the config struct.
// Each section is walked by reflection; an env tag may list several
// comma-separated names and the first one set wins.
func LoadEnv(config *AppConfig) error {
	log.Debug().Msg("Loading environment variables")

	if err := processStructEnv(config); err != nil {
		return err
	}

	log.Debug().
		Str("APP_ENV", config.App.Environment).
		Str("DB_HOST", config.Database.Host).
		Str("REDIS_HOST", config.Redis.Host).
		Msg("Environment variables loaded")

	return nil
}

// lookupEnv returns the value of the first variable in names that is set.
func lookupEnv(names string) (string, string, bool) {
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if v, ok := os.LookupEnv(name); ok {
			return name, v, true
		}
	}
	return "", "", false
}

// processStructEnv processes environment variables for a struct and its nested sections
func processStructEnv(s interface{}) error {
	val := reflect.ValueOf(s).Elem()
	typ := val.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if fieldVal.Kind() == reflect.Struct {
			if err := processStructEnv(fieldVal.Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}

		envName, envValue, exists := lookupEnv(tag)
		if !exists {
			continue
		}

		if err := setField(fieldVal, field.Type, envName, envValue); err != nil {
			return err
		}
	}

	return nil
}

func setField(fieldVal reflect.Value, fieldType reflect.Type, envName, envValue string) error {
	switch fieldVal.Kind() {
	case reflect.String:
		fieldVal.SetString(envValue)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fieldType == durationType {
			duration, err := time.ParseDuration(envValue)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", envName, err)
			}
			fieldVal.SetInt(int64(duration))
			return nil
		}
		intValue, err := strconv.ParseInt(envValue, 10, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", envName, err)
		}
		fieldVal.SetInt(intValue)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintValue, err := strconv.ParseUint(envValue, 10, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer for %s: %w", envName, err)
		}
		fieldVal.SetUint(uintValue)

	case reflect.Bool:
		boolValue, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", envName, err)
		}
		fieldVal.SetBool(boolValue)

	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(envValue, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", envName, err)
		}
		fieldVal.SetFloat(floatValue)

	case reflect.Slice:
		// Only string slices can be expressed as comma-separated values
		if fieldVal.Type().Elem().Kind() == reflect.String {
			values := strings.Split(envValue, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			fieldVal.Set(reflect.ValueOf(values))
		}
	}

	return nil
}
