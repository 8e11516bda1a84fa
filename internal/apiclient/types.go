package apiclient

import "github.com/storedesk/storedesk/internal/access"

// LoginResult is returned by a successful credential exchange.
type LoginResult struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	User        access.UserProfile `json:"user"`
}

// Product is a store catalogue entry.
type Product struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Quantity      int              `json:"quantity"`
	PurchasePrice float64          `json:"purchase_price"`
	SellingPrice  float64          `json:"selling_price"`
	Category      *string          `json:"category"`
	Supplier      *string          `json:"supplier"`
	CreatedAt     access.Timestamp `json:"created_at"`
	UpdatedAt     access.Timestamp `json:"updated_at"`
}

// ProductInput is the payload for creating or replacing a product.
type ProductInput struct {
	Name          string  `json:"name"`
	Quantity      int     `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	SellingPrice  float64 `json:"selling_price"`
	Category      *string `json:"category,omitempty"`
	Supplier      *string `json:"supplier,omitempty"`
}

// BillItem is one priced line of a bill.
type BillItem struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	PricePerUnit float64 `json:"price_per_unit"`
	Subtotal     float64 `json:"subtotal"`
}

// Bill is a completed sale.
type Bill struct {
	ID          int64            `json:"id"`
	BillNumber  string           `json:"bill_number"`
	TotalAmount float64          `json:"total_amount"`
	CreatedBy   int64            `json:"created_by"`
	CreatedAt   access.Timestamp `json:"created_at"`
	Items       []BillItem       `json:"items"`
}

// BillLine requests quantity units of a product.
type BillLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// SalesBill summarises one bill inside the daily sales report.
type SalesBill struct {
	BillNumber  string           `json:"bill_number"`
	TotalAmount float64          `json:"total_amount"`
	CreatedAt   access.Timestamp `json:"created_at"`
	CreatedBy   string           `json:"created_by"`
}

// DailySales is the sales report for one day.
type DailySales struct {
	Date       string      `json:"date"`
	TotalSales float64     `json:"total_sales"`
	BillCount  int         `json:"bill_count"`
	Bills      []SalesBill `json:"bills"`
}

// ProductProfit is the per-product breakdown of the profit report.
type ProductProfit struct {
	QuantitySold int     `json:"quantity_sold"`
	Profit       float64 `json:"profit"`
}

// DailyProfit is the profit report for one day, keyed by product name.
type DailyProfit struct {
	Date             string                   `json:"date"`
	TotalProfit      float64                  `json:"total_profit"`
	ProductBreakdown map[string]ProductProfit `json:"product_breakdown"`
}

// NewUser is the payload for creating an account.
type NewUser struct {
	Username string      `json:"username"`
	FullName string      `json:"full_name"`
	Email    string      `json:"email"`
	Role     access.Role `json:"role"`
	Password string      `json:"password"`
}

// UserChanges is a partial account update. Nil members are left alone.
type UserChanges struct {
	FullName *string      `json:"full_name,omitempty"`
	Email    *string      `json:"email,omitempty"`
	Role     *access.Role `json:"role,omitempty"`
	IsActive *bool        `json:"is_active,omitempty"`
	Password *string      `json:"password,omitempty"`
}

// ChatReply is the assistant answer to one message.
type ChatReply struct {
	Response        string         `json:"response"`
	SessionID       string         `json:"session_id"`
	ActionPerformed *string        `json:"action_performed"`
	Data            map[string]any `json:"data,omitempty"`
}

// ChatMessage is one turn of an assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatHistory is the stored transcript of a conversation.
type ChatHistory struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
	Count     int           `json:"count"`
}
