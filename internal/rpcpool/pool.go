package rpcpool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	requestTimeout = 10 * time.Second
	maxAttempts    = 3
)

// Pool Solana JSON-RPC客户端池：多endpoint随机选取，失败时换节点重试
type Pool struct {
	endpoints []string
	client    *http.Client
}

// New 创建RPC池
func New(endpoints []string) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("至少需要一个RPC endpoint")
	}
	return &Pool{
		endpoints: endpoints,
		client:    &http.Client{Timeout: requestTimeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type accountInfoResult struct {
	Value *struct {
		Data []string `json:"data"` // [base64内容, "base64"]
	} `json:"value"`
}

// GetAccountData 获取账户原始数据（base64解码后的字节）
func (p *Pool) GetAccountData(ctx context.Context, pubkey string) ([]byte, error) {
	raw, err := p.call(ctx, "getAccountInfo", []interface{}{
		pubkey,
		map[string]string{"encoding": "base64"},
	})
	if err != nil {
		return nil, err
	}

	var result accountInfoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("解析账户信息失败: %w", err)
	}
	if result.Value == nil || len(result.Value.Data) < 1 {
		return nil, fmt.Errorf("账户不存在: %s", pubkey)
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("解码账户数据失败: %w", err)
	}
	return data, nil
}

// GetHealth 健康检查
func (p *Pool) GetHealth(ctx context.Context) error {
	raw, err := p.call(ctx, "getHealth", nil)
	if err != nil {
		return err
	}

	var status string
	if err := json.Unmarshal(raw, &status); err != nil || status != "ok" {
		return fmt.Errorf("RPC节点不健康: %s", string(raw))
	}
	return nil
}

// call 发起JSON-RPC请求，随机选节点，失败退避重试
func (p *Pool) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化RPC请求失败: %w", err)
	}

	var lastErr error
	delay := 200 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		endpoint := p.endpoints[rand.Intn(len(p.endpoints))]

		raw, err := p.post(ctx, endpoint, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		zap.L().Debug("RPC请求失败，准备重试",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("RPC请求%s失败（已重试%d次）: %w", method, maxAttempts, lastErr)
}

func (p *Pool) post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP状态码异常: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("解析RPC响应失败: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC错误 %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
