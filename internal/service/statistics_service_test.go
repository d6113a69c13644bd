package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatisticsAggregatesLifecycle(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	stats := NewStatisticsService(env.db, env.calculator)
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	product := env.createProduct(t, "SKU-STATS", dec(t, "20"))

	pid := product.ID
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, &pid))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	result, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)
	_, err = env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, result.DocumentID.String(),
		RecordPaymentRequest{Amount: "500"})
	require.NoError(t, err)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	got, err := stats.GetStatistics(ctx, start, end)
	require.NoError(t, err)

	assert.EqualValues(t, 1, got.QuoteCounts[model.QuoteStatusInvoiced])
	assert.EqualValues(t, 1, got.OrderCounts[model.OrderStatusConfirmed])
	assert.EqualValues(t, 1, got.InvoiceCounts[model.InvoiceStatusPartial])

	assert.Equal(t, "1180.00", got.TotalQuotedValue)
	assert.Equal(t, "1180.00", got.TotalOrderedValue)
	assert.Equal(t, "1180.00", got.TotalInvoicedValue)
	assert.Equal(t, "500.00", got.TotalCollected)
	assert.Equal(t, "680.00", got.OutstandingBalance)
	assert.Equal(t, "1180.00", got.AverageDealSize)
	assert.Equal(t, "100.00", got.ConversionRate)

	require.Len(t, got.TopProducts, 1)
	assert.Equal(t, "SKU-STATS", got.TopProducts[0].ProductSKU)
}

func TestGetStatisticsEmptyRange(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	stats := NewStatisticsService(env.db, env.calculator)

	start := time.Now().Add(24 * time.Hour)
	end := start.Add(time.Hour)
	got, err := stats.GetStatistics(context.Background(), start, end)
	require.NoError(t, err)

	assert.Empty(t, got.QuoteCounts)
	assert.Equal(t, "0.00", got.TotalQuotedValue)
	assert.Equal(t, "0.00", got.AverageDealSize)
	assert.Equal(t, "0.00", got.ConversionRate)
}
