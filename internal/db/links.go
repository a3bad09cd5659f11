package db

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// InsertLinkTx records that executionID was allocated contributedShares
// from tradeID, per the FIFO greedy allocation of spec section 4.7. Link
// rows are append-only and never updated.
func InsertLinkTx(tx *Tx, link domain.TradeExecutionLink) (domain.TradeExecutionLink, error) {
	id, err := nextID(tx, "link")
	if err != nil {
		return domain.TradeExecutionLink{}, err
	}
	link.ID = id

	raw, err := json.Marshal(link)
	if err != nil {
		return domain.TradeExecutionLink{}, fmt.Errorf("encode link %d: %w", id, err)
	}
	if err := tx.set(linkByIDKey(id), raw); err != nil {
		return domain.TradeExecutionLink{}, err
	}
	if err := tx.set(linkByExecutionKey(link.ExecutionID, id), []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.TradeExecutionLink{}, err
	}
	if err := tx.set(linkByTradeKey(link.TradeID, id), []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.TradeExecutionLink{}, err
	}

	return link, nil
}

func getLink(r reader, id int64) (*domain.TradeExecutionLink, bool, error) {
	raw, found, err := r.get(linkByIDKey(id))
	if err != nil || !found {
		return nil, found, err
	}
	var link domain.TradeExecutionLink
	if err := json.Unmarshal(raw, &link); err != nil {
		return nil, false, fmt.Errorf("decode link %d: %w", id, err)
	}
	return &link, true, nil
}

// ListLinksByExecutionTx returns every link recorded against executionID.
func ListLinksByExecutionTx(r reader, executionID int64) ([]domain.TradeExecutionLink, error) {
	prefix := linkByExecutionPrefix(executionID)
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var links []domain.TradeExecutionLink
	for iter.First(); iter.Valid(); iter.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
			return nil, fmt.Errorf("corrupt link execution index entry: %w", err)
		}
		link, found, err := getLink(r, id)
		if err != nil {
			return nil, err
		}
		if found {
			links = append(links, *link)
		}
	}
	return links, nil
}

// ListLinksByTradeTx returns every link recorded against tradeID.
func ListLinksByTradeTx(r reader, tradeID int64) ([]domain.TradeExecutionLink, error) {
	prefix := linkByTradePrefix(tradeID)
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var links []domain.TradeExecutionLink
	for iter.First(); iter.Valid(); iter.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
			return nil, fmt.Errorf("corrupt link trade index entry: %w", err)
		}
		link, found, err := getLink(r, id)
		if err != nil {
			return nil, err
		}
		if found {
			links = append(links, *link)
		}
	}
	return links, nil
}

// SumContributedSharesByTradeTx totals every allocation recorded against
// tradeID, the basis for the conservation-law audit of spec section 8:
// the sum of a trade's contributed shares must never exceed its amount.
func SumContributedSharesByTradeTx(r reader, tradeID int64) (decimal.Decimal, error) {
	links, err := ListLinksByTradeTx(r, tradeID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, link := range links {
		total = total.Add(link.ContributedShares)
	}
	return total, nil
}
