package store

import (
	"database/sql"
	"fmt"
	"time"

	"exchange/internal/orderbook"
)

// DealRecord is one persisted execution.
type DealRecord struct {
	Reference      string    `json:"reference"`
	InstrumentID   uint32    `json:"instrument_id"`
	Price          uint32    `json:"price"`
	Quantity       uint32    `json:"quantity"`
	BuyerClientID  uint32    `json:"buyer_client_id"`
	BuyerOrderID   uint32    `json:"buyer_order_id"`
	SellerClientID uint32    `json:"seller_client_id"`
	SellerOrderID  uint32    `json:"seller_order_id"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// RecordDeal persists one execution.
func (s *Store) RecordDeal(instrumentID uint32, d *orderbook.Deal) error {
	_, err := s.db.Exec(`
		INSERT INTO deals (reference, instrument_id, price, quantity,
			buyer_client_id, buyer_order_id, seller_client_id, seller_order_id, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Reference, instrumentID, uint32(d.Price), uint32(d.Qty),
		uint32(d.BuyerClientID), uint32(d.BuyerOrderID),
		uint32(d.SellerClientID), uint32(d.SellerOrderID), d.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record deal %s: %w", d.Reference, err)
	}
	return nil
}

// RecordCancellation persists one book-initiated order removal.
func (s *Store) RecordCancellation(instrumentID uint32, o orderbook.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO cancellations (instrument_id, client_id, order_id, way, price, quantity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		instrumentID, uint32(o.ClientID), uint32(o.OrderID),
		o.Way.String(), uint32(o.Price), uint32(o.Qty))
	if err != nil {
		return fmt.Errorf("record cancellation %d/%d: %w", o.ClientID, o.OrderID, err)
	}
	return nil
}

// RecentDeals returns up to limit deals for one instrument, newest first.
func (s *Store) RecentDeals(instrumentID uint32, limit int) ([]DealRecord, error) {
	rows, err := s.db.Query(`
		SELECT reference, instrument_id, price, quantity,
			buyer_client_id, buyer_order_id, seller_client_id, seller_order_id, executed_at
		FROM deals WHERE instrument_id = ?
		ORDER BY executed_at DESC, reference DESC LIMIT ?`,
		instrumentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeals(rows)
}

// DealsByClient returns up to limit deals in which the client took part on
// either side, newest first.
func (s *Store) DealsByClient(clientID uint32, limit int) ([]DealRecord, error) {
	rows, err := s.db.Query(`
		SELECT reference, instrument_id, price, quantity,
			buyer_client_id, buyer_order_id, seller_client_id, seller_order_id, executed_at
		FROM deals WHERE buyer_client_id = ? OR seller_client_id = ?
		ORDER BY executed_at DESC, reference DESC LIMIT ?`,
		clientID, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeals(rows)
}

func scanDeals(rows *sql.Rows) ([]DealRecord, error) {
	var out []DealRecord
	for rows.Next() {
		var d DealRecord
		if err := rows.Scan(&d.Reference, &d.InstrumentID, &d.Price, &d.Quantity,
			&d.BuyerClientID, &d.BuyerOrderID, &d.SellerClientID, &d.SellerOrderID,
			&d.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
