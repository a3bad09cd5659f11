package db

import "fmt"

// Key schema, following the teacher's prefix-and-lexicographic-order
// design in pkg/app/core/account/keys.go: short prefixes for range
// scans, zero-padded decimal components so lexicographic byte order
// equals numeric order.

const (
	prefixEventByID      = "evt:id:"
	prefixEventByIdx     = "evt:idx:" // uniqueness: tx_hash:log_index -> id
	prefixEventOrder     = "evt:order:"
	prefixSeq            = "seq:"

	prefixTradeByID  = "trd:id:"
	prefixTradeByIdx = "trd:idx:"
	prefixTradeBySym = "trd:sym:"

	prefixAccumulator = "acc:"

	prefixExecByID     = "exe:id:"
	prefixExecBySymbol = "exe:sym:"
	prefixExecByStatus = "exe:status:"

	prefixLinkByID        = "lnk:id:"
	prefixLinkByExecution = "lnk:exe:"
	prefixLinkByTrade     = "lnk:trd:"

	prefixToken = "tok:"
)

func eventByIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEventByID, id))
}

func eventIdxKey(txHash string, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixEventByIdx, txHash, logIndex))
}

func eventOrderKey(blockNumber uint64, logIndex uint, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%010d:%020d", prefixEventOrder, blockNumber, logIndex, id))
}

func eventOrderPrefix() []byte { return []byte(prefixEventOrder) }

func tradeByIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTradeByID, id))
}

func tradeIdxKey(txHash string, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixTradeByIdx, txHash, logIndex))
}

func tradeBySymbolKey(baseSymbol string, createdAtUnixNano int64, id int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTradeBySym, baseSymbol, createdAtUnixNano, id))
}

func tradeBySymbolPrefix(baseSymbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTradeBySym, baseSymbol))
}

func accumulatorKey(symbol string) []byte {
	return []byte(prefixAccumulator + symbol)
}

func accumulatorScanPrefix() []byte { return []byte(prefixAccumulator) }

func execByIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixExecByID, id))
}

func execBySymbolKey(symbol string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixExecBySymbol, symbol, id))
}

func execBySymbolPrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixExecBySymbol, symbol))
}

func execByStatusKey(status string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixExecByStatus, status, id))
}

func execByStatusPrefix(status string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixExecByStatus, status))
}

func linkByIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixLinkByID, id))
}

func linkByExecutionKey(executionID, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixLinkByExecution, executionID, id))
}

func linkByExecutionPrefix(executionID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefixLinkByExecution, executionID))
}

func linkByTradeKey(tradeID, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixLinkByTrade, tradeID, id))
}

func linkByTradePrefix(tradeID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefixLinkByTrade, tradeID))
}

func tokenKey(fetchedAtUnixNano int64, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixToken, fetchedAtUnixNano, id))
}

func tokenScanPrefix() []byte { return []byte(prefixToken) }

func seqKey(entity string) []byte {
	return []byte(prefixSeq + entity)
}
