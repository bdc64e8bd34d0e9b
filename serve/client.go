package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	aicmd "github.com/npv12/zsh-ai-cmd"
)

// Query sends req to the daemon at sockPath and waits for its response.
// Cancelling ctx closes the connection.
func Query(ctx context.Context, sockPath string, req *aicmd.Request) (*aicmd.Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", sockPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("no response from daemon")
	}

	var resp aicmd.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Cancel asks the daemon to drop the in-flight request of sessionID.
func Cancel(ctx context.Context, sockPath, sessionID string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", sockPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := json.Marshal(aicmd.Request{Type: aicmd.CancelRequestType, SessionID: sessionID})
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}
