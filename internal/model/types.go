package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	RetryClass string `json:"retry_class,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	Cache     CacheStatus `json:"cache"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type SessionView struct {
	State       string `json:"state"`
	Account     string `json:"account,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	NetworkName string `json:"network_name,omitempty"`
	Resumed     bool   `json:"resumed,omitempty"`
}

type BalanceSnapshot struct {
	Account       string `json:"account"`
	ChainID       string `json:"chain_id"`
	NativeSymbol  string `json:"native_symbol"`
	NativeBalance string `json:"native_balance"`
	TokenSymbol   string `json:"token_symbol"`
	TokenBalance  string `json:"token_balance"`
	FetchedAt     string `json:"fetched_at"`
}

type MemeToken struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Sentiment string  `json:"sentiment"`
	RiskLevel string  `json:"risk_level"`
	FetchedAt string  `json:"fetched_at"`
}

type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

type PriceHistory struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Points   []PricePoint `json:"points"`
}

type AdvisorInfo struct {
	FeatureKey  string `json:"feature_key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UnlockCost  string `json:"unlock_cost"`
	Unlocked    bool   `json:"unlocked"`
}

type EntitlementView struct {
	FeatureKey string `json:"feature_key"`
	Account    string `json:"account"`
	State      string `json:"state"`
	TxApprove  string `json:"tx_approve,omitempty"`
	TxPurchase string `json:"tx_purchase,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatWindowView struct {
	FeatureKey string        `json:"feature_key"`
	Visible    bool          `json:"visible"`
	Messages   []ChatMessage `json:"messages,omitempty"`
}

type TxResult struct {
	Kind   string `json:"kind"`
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}
