// Package fingerprint вычисляет детерминированный ключ дедупликации
// опасности: тип, координаты, округленные до ~100 м, и пятиминутное окно.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// BucketSize - ширина временного окна
const BucketSize = 5 * time.Minute

// Generate возвращает 32-символьный hex-отпечаток.
// Одинаковые входные данные всегда дают одинаковый результат.
func Generate(hazardType string, longitude, latitude float64, detectedAt time.Time) string {
	key := fmt.Sprintf("%s-%.3f-%.3f-%d", hazardType, Round3(latitude), Round3(longitude), Bucket(detectedAt))
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Round3 округляет координату до трех знаков после запятой
func Round3(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		// -0 и 0 должны давать один и тот же ключ
		return 0
	}
	return r
}

// Bucket - номер пятиминутного окна: floor(epoch_ms / 300000)
func Bucket(t time.Time) int64 {
	ms := t.UnixMilli()
	size := BucketSize.Milliseconds()
	b := ms / size
	if ms%size != 0 && ms < 0 {
		b--
	}
	return b
}
