package cache

// Features with a cached result and backup.
const (
	FeatureIndicators = "indicators"
	FeatureCompass    = "compass"
	FeatureOptions    = "options"
)

// MaxCandles bounds every per-symbol candle list.
const MaxCandles = 100

func SnapshotKey(symbol string) string { return "snapshot:" + symbol }
func CandlesKey(symbol string) string  { return "candles:" + symbol }
func ScratchKey(symbol string) string  { return "scratch:" + symbol }
func SummaryKey(symbol string) string  { return "summary:" + symbol }

// ResultKey holds a feature's fresh result for a short TTL.
func ResultKey(feature, symbol string) string { return "result:" + feature + ":" + symbol }

// BackupKey holds a feature's last good result for a long TTL.
func BackupKey(feature, symbol string) string { return "backup:" + feature + ":" + symbol }

// StreamChannel is the pub/sub channel carrying a symbol's envelopes.
func StreamChannel(symbol string) string { return "stream:" + symbol }
