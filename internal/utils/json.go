package utils

import (
	"encoding/json"
	"log"
)

// SafeJSONParse parses JSON safely.
func SafeJSONParse(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// LogError logs an error if it's not nil.
func LogError(err error, context string) {
	if err != nil {
		log.Printf("Error [%s]: %v", context, err)
	}
}
