package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatisticsResponse struct {
	TimeRangeStartDate time.Time              `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time              `json:"time_range_end_date"`
	QuoteCounts        map[string]int64       `json:"quote_counts"`
	OrderCounts        map[string]int64       `json:"order_counts"`
	InvoiceCounts      map[string]int64       `json:"invoice_counts"`
	TotalQuotedValue   string                 `json:"total_quoted_value"`
	TotalOrderedValue  string                 `json:"total_ordered_value"`
	TotalInvoicedValue string                 `json:"total_invoiced_value"`
	TotalCollected     string                 `json:"total_collected"`
	OutstandingBalance string                 `json:"outstanding_balance"`
	AverageDealSize    string                 `json:"average_deal_size"`
	ConversionRate     string                 `json:"conversion_rate"`
	TopProducts        []model.ProductRanking `json:"top_products"`
}

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error)
}

type statisticsService struct {
	db         *gorm.DB
	calculator *FinancialCalculator
}

func NewStatisticsService(db *gorm.DB, calculator *FinancialCalculator) StatisticsService {
	return &statisticsService{db: db, calculator: calculator}
}

// GetStatistics aggregates lifecycle metrics over the given time bracket.
// Monetary sums are read back as text and re-parsed into decimals so no
// float arithmetic touches money.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error) {
	response := StatisticsResponse{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
		QuoteCounts:        map[string]int64{},
		OrderCounts:        map[string]int64{},
		InvoiceCounts:      map[string]int64{},
	}

	if err := s.statusCounts(ctx, "quotes", startDate, endDate, response.QuoteCounts); err != nil {
		return response, err
	}
	if err := s.statusCounts(ctx, "sales_orders", startDate, endDate, response.OrderCounts); err != nil {
		return response, err
	}
	if err := s.statusCounts(ctx, "invoices", startDate, endDate, response.InvoiceCounts); err != nil {
		return response, err
	}

	quotedValue, err := s.sumColumn(ctx, "quotes", "total", startDate, endDate)
	if err != nil {
		return response, err
	}
	orderedValue, err := s.sumColumn(ctx, "sales_orders", "total", startDate, endDate)
	if err != nil {
		return response, err
	}
	invoicedValue, err := s.sumColumn(ctx, "invoices", "total", startDate, endDate)
	if err != nil {
		return response, err
	}
	collected, err := s.sumColumn(ctx, "invoices", "amount_paid", startDate, endDate)
	if err != nil {
		return response, err
	}
	response.TotalQuotedValue = s.calculator.Format(quotedValue)
	response.TotalOrderedValue = s.calculator.Format(orderedValue)
	response.TotalInvoicedValue = s.calculator.Format(invoicedValue)
	response.TotalCollected = s.calculator.Format(collected)
	response.OutstandingBalance = s.calculator.Format(invoicedValue.Sub(collected))

	var totalOrders int64
	for _, count := range response.OrderCounts {
		totalOrders += count
	}
	if totalOrders > 0 {
		avg, divErr := s.calculator.Divide(orderedValue, decimal.NewFromInt(totalOrders))
		if divErr != nil {
			return response, divErr
		}
		response.AverageDealSize = s.calculator.Format(avg)
	} else {
		response.AverageDealSize = "0.00"
	}

	var totalQuotes int64
	for _, count := range response.QuoteCounts {
		totalQuotes += count
	}
	if totalQuotes > 0 {
		rate, divErr := s.calculator.Divide(decimal.NewFromInt(totalOrders).Mul(decimal.NewFromInt(100)), decimal.NewFromInt(totalQuotes))
		if divErr != nil {
			return response, divErr
		}
		response.ConversionRate = s.calculator.Format(rate)
	} else {
		response.ConversionRate = "0.00"
	}

	var topProducts []model.ProductRanking
	if err := s.db.WithContext(ctx).Table("line_items").
		Select("products.id as product_id, products.name as product_name, products.sku as product_sku, SUM(line_items.quantity) as total_quantity, CAST(SUM(line_items.subtotal) AS TEXT) as total_value").
		Joins("JOIN products ON products.id = line_items.product_id").
		Where("line_items.document_type = ? AND line_items.created_at >= ? AND line_items.created_at <= ?", model.DocTypeSalesOrder, startDate, endDate).
		Group("products.id, products.name, products.sku").
		Order("total_quantity DESC").
		Limit(5).
		Scan(&topProducts).Error; err != nil {
		return response, fmt.Errorf("failed to query top products: %w", err)
	}
	response.TopProducts = topProducts

	return response, nil
}

func (s *statisticsService) statusCounts(ctx context.Context, table string, start, end time.Time, into map[string]int64) error {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.WithContext(ctx).Table(table).
		Select("status, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("status").
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to count %s by status: %w", table, err)
	}
	for _, row := range rows {
		into[row.Status] = row.Count
	}
	return nil
}

func (s *statisticsService) sumColumn(ctx context.Context, table, column string, start, end time.Time) (decimal.Decimal, error) {
	var result struct {
		Value string
	}
	if err := s.db.WithContext(ctx).Table(table).
		Select(fmt.Sprintf("COALESCE(CAST(SUM(%s) AS TEXT), '0') as value", column)).
		Where("created_at >= ? AND created_at <= ?", start, end).
		Scan(&result).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum %s.%s: %w", table, column, err)
	}
	value, err := decimal.NewFromString(result.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse aggregate %q: %w", result.Value, err)
	}
	return value, nil
}
