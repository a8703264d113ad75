package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"candleView/internal/domain"
)

// WriteBarsToCSV exports bars in ascending time order for offline
// inspection. Timestamps are written both raw and formatted.
func WriteBarsToCSV(bars []domain.Bar, symbol string, granularity domain.Granularity, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"timestamp", "open_time", "symbol", "granularity", "open", "high", "low", "close", "volume"})

	for _, b := range bars {
		writer.Write([]string{
			strconv.FormatInt(b.Timestamp, 10),
			b.OpenTime().UTC().Format(time.RFC3339),
			symbol,
			granularity.String(),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}
