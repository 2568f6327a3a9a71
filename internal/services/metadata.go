package services

import (
	"encoding/json"
	"sort"
	"strconv"
	"unicode/utf8"

	"fabricmart/internal/models"
)

// Metadata keys written on the checkout session and read back by webhook ingestion.
const (
	metaOrderID    = "order_id"
	metaItems      = "items"
	metaSellers    = "sellers"
	metaListingID  = "listing_id"
	metaSellerID   = "seller_id"
	metaBuyerID    = "buyer_id"
	metaUserID     = "user_id"
	metaBuyerEmail = "buyer_email"
	metaSubtotal   = "subtotal"
	metaShipping   = "shipping"
)

const (
	// maxMetadataValue is the processor's per-value metadata limit.
	maxMetadataValue = 500
	maxSnapshotName  = 60
)

type snapshotEntry struct {
	Name     string `json:"n"`
	Quantity int    `json:"q"`
}

// EncodeItemSnapshot renders name+quantity pairs as compact JSON no longer than the
// metadata limit. Names are cut to a bounded rune length and trailing items are dropped
// when the cart is too large to fit.
func EncodeItemSnapshot(items []models.ItemSnapshot) string {
	entries := make([]snapshotEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, snapshotEntry{Name: truncateRunes(it.Name, maxSnapshotName), Quantity: it.Quantity})
	}
	for len(entries) > 0 {
		b, err := json.Marshal(entries)
		if err == nil && len(b) <= maxMetadataValue {
			return string(b)
		}
		entries = entries[:len(entries)-1]
	}
	return "[]"
}

// DecodeItemSnapshot reverses EncodeItemSnapshot.
func DecodeItemSnapshot(s string) ([]models.ItemSnapshot, error) {
	if s == "" {
		return []models.ItemSnapshot{}, nil
	}
	var entries []snapshotEntry
	if err := json.Unmarshal([]byte(s), &entries); err != nil {
		return nil, err
	}
	out := make([]models.ItemSnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.ItemSnapshot{Name: e.Name, Quantity: e.Quantity})
	}
	return out, nil
}

// EncodeSellerSplit renders the seller-account → minor-units map.
func EncodeSellerSplit(split map[string]int64) string {
	if len(split) == 0 {
		return "{}"
	}
	b, err := json.Marshal(split)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeSellerSplit reverses EncodeSellerSplit.
func DecodeSellerSplit(s string) (map[string]int64, error) {
	split := map[string]int64{}
	if s == "" {
		return split, nil
	}
	if err := json.Unmarshal([]byte(s), &split); err != nil {
		return nil, err
	}
	return split, nil
}

// firstSeller returns the lowest account id in the split, for single-seller attribution.
func firstSeller(split map[string]int64) string {
	if len(split) == 0 {
		return ""
	}
	accts := make([]string, 0, len(split))
	for a := range split {
		accts = append(accts, a)
	}
	sort.Strings(accts)
	return accts[0]
}

func metaInt(meta map[string]string, key string) (int64, bool) {
	v, ok := meta[key]
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
