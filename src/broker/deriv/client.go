package deriv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"

	"derivbot/src/broker"
	"derivbot/src/market"
)

const (
	pingInterval    = 30 * time.Second
	writeTimeout    = 10 * time.Second
	defaultContract = 60 * time.Second
)

// Client Deriv 二元期权经纪商客户端
// 单条 websocket 连接承载授权、余额订阅、下单与合约回报
type Client struct {
	conn     *websocket.Conn
	currency string

	writeMu sync.Mutex

	mu        sync.Mutex
	nextReqID int64
	pending   map[int64]string // req_id -> position id，等待 buy 回执
	contracts map[int64]string // contract_id -> position id

	events   chan broker.Event
	stopChan chan struct{}
	stopOnce sync.Once
}

type apiMessage struct {
	MsgType string `json:"msg_type"`
	ReqID   int64  `json:"req_id"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Authorize *struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"authorize"`
	Balance *struct {
		Balance float64 `json:"balance"`
	} `json:"balance"`
	Buy *struct {
		ContractID int64   `json:"contract_id"`
		BuyPrice   float64 `json:"buy_price"`
	} `json:"buy"`
	ProposalOpenContract *struct {
		ContractID  int64   `json:"contract_id"`
		IsSold      int     `json:"is_sold"`
		Profit      float64 `json:"profit"`
		CurrentSpot float64 `json:"current_spot"`
	} `json:"proposal_open_contract"`
}

// Dial 建立连接并完成授权和余额订阅
func Dial(ctx context.Context, endpoint, appID, token string) (*Client, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("DerivClient")

	url := fmt.Sprintf("%s?app_id=%s", endpoint, appID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial deriv endpoint: %w", err)
	}

	c := &Client{
		conn:      conn,
		pending:   make(map[int64]string),
		contracts: make(map[int64]string),
		events:    make(chan broker.Event, 64),
		stopChan:  make(chan struct{}),
	}

	// 授权握手同步完成，失败直接暴露给启动流程
	if err := c.writeJSON(map[string]any{"authorize": token}); err != nil {
		conn.Close()
		return nil, err
	}
	var auth apiMessage
	if err := conn.ReadJSON(&auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read authorize response: %w", err)
	}
	if auth.Error != nil {
		conn.Close()
		return nil, fmt.Errorf("deriv authorize rejected: %s", auth.Error.Message)
	}
	if auth.Authorize == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected message during authorize: %s", auth.MsgType)
	}
	c.currency = auth.Authorize.Currency

	if err := c.writeJSON(map[string]any{"balance": 1, "subscribe": 1}); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readPump(ctx)
	go c.pingLoop()

	logger.Info(fmt.Sprintf("经纪商连接已建立: currency=%s, balance=%.2f",
		c.currency, auth.Authorize.Balance))
	return c, nil
}

// RequestOrder 提交买入合约请求，回执通过事件通道异步到达
func (c *Client) RequestOrder(_ context.Context, req broker.OrderRequest) error {
	contractType := "CALL"
	if req.Direction == market.SignalSell {
		contractType = "PUT"
	}

	duration := req.Duration
	if duration <= 0 {
		duration = defaultContract
	}

	c.mu.Lock()
	c.nextReqID++
	reqID := c.nextReqID
	c.pending[reqID] = req.PositionID
	c.mu.Unlock()

	stake, _ := req.Stake.Float64()
	payload := map[string]any{
		"buy":       1,
		"price":     stake,
		"subscribe": 1,
		"req_id":    reqID,
		"parameters": map[string]any{
			"amount":        stake,
			"basis":         "stake",
			"contract_type": contractType,
			"currency":      c.currency,
			"duration":      int(duration.Seconds()),
			"duration_unit": "s",
			"symbol":        req.Symbol,
		},
	}

	if err := c.writeJSON(payload); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return fmt.Errorf("failed to submit order: %w", err)
	}
	return nil
}

// Events 异步事件通道，连接断开后关闭
func (c *Client) Events() <-chan broker.Event {
	return c.events
}

// Close 关闭连接并终止后台协程
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })
	return c.conn.Close()
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write to deriv socket: %w", err)
	}
	return nil
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.writeJSON(map[string]any{"ping": 1}); err != nil {
				return
			}
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("DerivClient")
	defer close(c.events)

	for {
		var msg apiMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.stopChan:
			default:
				logger.Error("经纪商连接中断", "error", err)
			}
			return
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *apiMessage) {
	now := time.Now()

	if msg.Error != nil {
		c.mu.Lock()
		posID, ok := c.pending[msg.ReqID]
		delete(c.pending, msg.ReqID)
		c.mu.Unlock()
		if ok {
			c.push(broker.Event{
				Type:       broker.EventOrderFailed,
				PositionID: posID,
				Reason:     msg.Error.Message,
				Timestamp:  now,
			})
		}
		return
	}

	switch msg.MsgType {
	case "balance":
		if msg.Balance != nil {
			c.push(broker.Event{
				Type:      broker.EventBalanceUpdate,
				Balance:   decimal.NewFromFloat(msg.Balance.Balance),
				Timestamp: now,
			})
		}

	case "buy":
		if msg.Buy == nil {
			return
		}
		c.mu.Lock()
		posID, ok := c.pending[msg.ReqID]
		delete(c.pending, msg.ReqID)
		if ok {
			c.contracts[msg.Buy.ContractID] = posID
		}
		c.mu.Unlock()
		if ok {
			// buy_price 是合约成本而不是入场点位，开仓价保持下单时的行情价
			c.push(broker.Event{
				Type:       broker.EventPositionOpened,
				PositionID: posID,
				Timestamp:  now,
			})
		}

	case "proposal_open_contract":
		poc := msg.ProposalOpenContract
		if poc == nil {
			return
		}
		c.mu.Lock()
		posID, ok := c.contracts[poc.ContractID]
		if ok && poc.IsSold == 1 {
			delete(c.contracts, poc.ContractID)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		if poc.IsSold == 1 {
			c.push(broker.Event{
				Type:       broker.EventPositionClosed,
				PositionID: posID,
				Profit:     decimal.NewFromFloat(poc.Profit),
				Price:      decimal.NewFromFloat(poc.CurrentSpot),
				Timestamp:  now,
			})
		} else {
			c.push(broker.Event{
				Type:       broker.EventPositionUpdate,
				PositionID: posID,
				Price:      decimal.NewFromFloat(poc.CurrentSpot),
				Timestamp:  now,
			})
		}
	}
}

// push 非阻塞入队，消费方落后太多时丢最旧的事件
func (c *Client) push(ev broker.Event) {
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		c.events <- ev
	}
}
