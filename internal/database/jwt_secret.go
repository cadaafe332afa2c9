package database

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ispanel/backend/internal/models"
)

const jwtSecretKey = "jwt_secret"

// EnsureJWTSecret keeps the signing secret stable across restarts by storing it
// in system_preferences. An explicitly configured secret always wins.
func EnsureJWTSecret(db *gorm.DB, configured string, explicit bool, log *zap.Logger) string {
	if db == nil {
		log.Warn("JWT: no database, signing secret will not persist")
		return configured
	}
	if explicit {
		return configured
	}

	var pref models.SystemPreference
	err := db.Where("key = ?", jwtSecretKey).First(&pref).Error
	if err == nil && pref.Value != "" {
		log.Info("JWT: secret loaded from database, sessions persist across restarts")
		return pref.Value
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("JWT: failed to read persisted secret", zap.Error(err))
		return configured
	}

	secret := configured
	if secret == "" {
		secret = generateSecureSecret(32)
	}
	pref = models.SystemPreference{Key: jwtSecretKey, Value: secret, ValueType: "string"}
	if err := db.Create(&pref).Error; err != nil {
		// another instance won the race; use its value
		var existing models.SystemPreference
		if db.Where("key = ?", jwtSecretKey).First(&existing).Error == nil && existing.Value != "" {
			return existing.Value
		}
		log.Warn("JWT: failed to persist secret", zap.Error(err))
	}
	log.Info("JWT: secret generated and persisted to database")
	return secret
}

func generateSecureSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
