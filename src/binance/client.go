package binance

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// Client 币安行情客户端封装，只做行情读取，下单走经纪商通道
type Client struct {
	client *binance.Client
}

// KlineData K线数据 - 符合币安官方API返回格式
type KlineData struct {
	Symbol    string          `json:"symbol"`
	OpenTime  int64           `json:"open_time"`  // 开盘时间
	Open      decimal.Decimal `json:"open"`       // 开盘价
	High      decimal.Decimal `json:"high"`       // 最高价
	Low       decimal.Decimal `json:"low"`        // 最低价
	Close     decimal.Decimal `json:"close"`      // 收盘价
	Volume    decimal.Decimal `json:"volume"`     // 成交量
	CloseTime int64           `json:"close_time"` // 收盘时间
}

// NewClient 创建新的币安行情客户端
func NewClient(apiKey, secretKey, baseURL string) *Client {
	client := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &Client{client: client}
}

// GetKlines 获取最近 limit 根K线
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*KlineData, error) {
	service := c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval)

	if limit > 0 {
		service = service.Limit(limit)
	}

	klines, err := service.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	result := make([]*KlineData, len(klines))
	for i, kline := range klines {
		open, _ := decimal.NewFromString(kline.Open)
		high, _ := decimal.NewFromString(kline.High)
		low, _ := decimal.NewFromString(kline.Low)
		close, _ := decimal.NewFromString(kline.Close)
		volume, _ := decimal.NewFromString(kline.Volume)

		result[i] = &KlineData{
			Symbol:    symbol,
			OpenTime:  kline.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: kline.CloseTime,
		}
	}

	return result, nil
}

// GetCurrentPrice 获取当前价格
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get current price: %w", err)
	}

	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price data for symbol %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price: %w", err)
	}

	return price, nil
}

// Ping 测试行情接口连通性
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("failed to ping binance: %w", err)
	}
	return nil
}
