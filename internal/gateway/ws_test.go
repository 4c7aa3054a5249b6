package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"screener-stream/config"
	"screener-stream/internal/model"
)

// wsConn wraps a test connection with a frame queue: the write pump
// folds bursts into one newline-separated message, so a single read can
// yield several protocol frames.
type wsConn struct {
	t      *testing.T
	conn   *websocket.Conn
	queued [][]byte
}

func dialWS(t *testing.T, srvURL string) *wsConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

func (c *wsConn) send(v any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// next returns the next protocol frame, or false once the deadline
// passes with nothing queued or readable.
func (c *wsConn) next(timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if len(c.queued) > 0 {
			buf := c.queued[0]
			c.queued = c.queued[1:]
			return buf, true
		}
		if !time.Now().Before(deadline) {
			return nil, false
		}
		c.conn.SetReadDeadline(deadline)
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return nil, false
		}
		for _, part := range bytes.Split(raw, []byte{'\n'}) {
			if len(part) > 0 {
				c.queued = append(c.queued, part)
			}
		}
	}
}

// expect fails unless the next frame has wantType, decoding it into
// target when given.
func (c *wsConn) expect(target any, wantType string, timeout time.Duration) {
	c.t.Helper()
	raw, ok := c.next(timeout)
	if !ok {
		c.t.Fatalf("no frame within %v waiting for %s", timeout, wantType)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		c.t.Fatalf("undecodable frame %q: %v", raw, err)
	}
	if head.Type != wantType {
		c.t.Fatalf("frame type = %s, want %s (frame %s)", head.Type, wantType, raw)
	}
	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			c.t.Fatalf("decode %s: %v", wantType, err)
		}
	}
}

func (c *wsConn) expectSilence(d time.Duration) {
	c.t.Helper()
	if raw, ok := c.next(d); ok {
		c.t.Fatalf("unexpected frame: %s", raw)
	}
}

func updateFor(symbol string, price float64, fields []string, alerts ...model.Alert) model.Update {
	return model.Update{
		Symbol: symbol,
		Snapshot: model.StockSnapshot{
			Symbol:    symbol,
			Price:     price,
			Signal:    model.Hold(),
			UpdatedAt: time.Now(),
		},
		Alerts:        alerts,
		UpdatedFields: fields,
	}
}

func newWSFixture(t *testing.T) (*Server, *wsConn, *httptest.Server) {
	t.Helper()
	src := &stubSource{snaps: []model.StockSnapshot{
		snapWithGap("RELIANCE", fptr(2.0), 1000),
		snapWithGap("TCS", nil, 500),
	}}
	srv := newTestServer(t, src, nil)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	return srv, dialWS(t, ts.URL), ts
}

func TestWS_DetailChannel(t *testing.T) {
	srv, c, _ := newWSFixture(t)

	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "r1", Symbol: "reliance"})

	var ack SubscribedMsg
	c.expect(&ack, "SUBSCRIBED", 2*time.Second)
	if ack.ReqID != "r1" || ack.Symbol != "RELIANCE" {
		t.Fatalf("ack = %+v", ack)
	}
	// current state rides the ack
	if ack.Snapshot == nil || ack.Snapshot.Symbol != "RELIANCE" {
		t.Fatalf("ack snapshot = %+v, want RELIANCE", ack.Snapshot)
	}

	srv.hub.Publish(updateFor("RELIANCE", 105.5, []string{"price"}))
	var upd UpdateMsg
	c.expect(&upd, "UPDATE", 2*time.Second)
	if upd.Symbol != "RELIANCE" || upd.Snapshot.Price != 105.5 {
		t.Fatalf("update = %+v", upd)
	}
	if upd.Signal.Direction != model.DirectionHold {
		t.Errorf("signal = %+v, want HOLD", upd.Signal)
	}

	// alerts ride the update that fired them
	a := model.Alert{
		ID: "al1", Symbol: "RELIANCE", Type: model.AlertGap,
		Severity: model.SeverityInfo, Message: "gap up", Value: 2.0, TS: time.Now(),
	}
	srv.hub.Publish(updateFor("RELIANCE", 106, []string{"price"}, a))
	c.expect(&upd, "UPDATE", 2*time.Second)
	if len(upd.Alerts) != 1 || upd.Alerts[0].Type != model.AlertGap {
		t.Fatalf("alerts = %+v, want one gap alert", upd.Alerts)
	}

	// other symbols never leak into a detail channel
	srv.hub.Publish(updateFor("TCS", 50, []string{"price"}))
	c.expectSilence(150 * time.Millisecond)
}

func TestWS_ScreenerChannel(t *testing.T) {
	srv, c, _ := newWSFixture(t)

	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "s1", Symbol: "*"})

	var ack SubscribedMsg
	c.expect(&ack, "SUBSCRIBED", 2*time.Second)
	if ack.Symbol != "*" || len(ack.Stocks) != 2 {
		t.Fatalf("ack = symbol %q with %d stocks, want * with 2", ack.Symbol, len(ack.Stocks))
	}

	srv.hub.Publish(updateFor("TCS", 51.5, []string{"price", "volume"}))
	var scr ScreenerMsg
	c.expect(&scr, "SCREENER", 2*time.Second)
	if scr.Symbol != "TCS" {
		t.Fatalf("screener symbol = %q, want TCS", scr.Symbol)
	}
	if !reflect.DeepEqual(scr.UpdatedFields, []string{"price", "volume"}) {
		t.Errorf("updatedFields = %v", scr.UpdatedFields)
	}
	if scr.Snapshot.Price != 51.5 {
		t.Errorf("snapshot price = %v, want 51.5", scr.Snapshot.Price)
	}

	// every symbol reaches the screener channel
	srv.hub.Publish(updateFor("RELIANCE", 99, []string{"price"}))
	c.expect(&scr, "SCREENER", 2*time.Second)
	if scr.Symbol != "RELIANCE" {
		t.Fatalf("screener symbol = %q, want RELIANCE", scr.Symbol)
	}
}

func TestWS_UnsubscribeStopsFlow(t *testing.T) {
	srv, c, _ := newWSFixture(t)

	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "r1", Symbol: "RELIANCE"})
	c.expect(nil, "SUBSCRIBED", 2*time.Second)

	c.send(ClientMsg{Type: "UNSUBSCRIBE", ReqID: "u1", Symbol: "RELIANCE"})
	var unack UnsubscribedMsg
	c.expect(&unack, "UNSUBSCRIBED", 2*time.Second)
	if unack.ReqID != "u1" || unack.Symbol != "RELIANCE" {
		t.Fatalf("unack = %+v", unack)
	}

	// hub side released by the time the ack arrives
	if n := srv.hub.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}

	srv.hub.Publish(updateFor("RELIANCE", 101, []string{"price"}))
	c.expectSilence(150 * time.Millisecond)
}

func TestWS_ProtocolErrors(t *testing.T) {
	_, c, _ := newWSFixture(t)

	var e ErrorMsg

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.expect(&e, "ERROR", 2*time.Second)
	if !strings.Contains(e.Error, "malformed") {
		t.Errorf("error = %q, want malformed message", e.Error)
	}

	c.send(ClientMsg{Type: "BOGUS", ReqID: "x9"})
	c.expect(&e, "ERROR", 2*time.Second)
	if e.ReqID != "x9" || !strings.Contains(e.Error, "unknown message type") {
		t.Errorf("error = %+v", e)
	}

	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "x10"})
	c.expect(&e, "ERROR", 2*time.Second)
	if e.ReqID != "x10" || !strings.Contains(e.Error, "symbol required") {
		t.Errorf("error = %+v", e)
	}

	c.send(ClientMsg{Type: "UNSUBSCRIBE", ReqID: "x11", Symbol: "TCS"})
	c.expect(&e, "ERROR", 2*time.Second)
	if e.ReqID != "x11" || !strings.Contains(e.Error, "not subscribed") {
		t.Errorf("error = %+v", e)
	}

	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "x12", Symbol: "TCS"})
	c.expect(nil, "SUBSCRIBED", 2*time.Second)
	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "x13", Symbol: "TCS"})
	c.expect(&e, "ERROR", 2*time.Second)
	if e.ReqID != "x13" || !strings.Contains(e.Error, "already subscribed") {
		t.Errorf("error = %+v", e)
	}
}

func TestWS_UnknownSymbolSilentUntilItTicks(t *testing.T) {
	srv, c, _ := newWSFixture(t)

	c.send(ClientMsg{Type: "SUBSCRIBE", ReqID: "g1", Symbol: "GHOST"})
	var ack SubscribedMsg
	c.expect(&ack, "SUBSCRIBED", 2*time.Second)
	if ack.Snapshot != nil {
		t.Fatalf("ack snapshot = %+v, want none for an unseen symbol", ack.Snapshot)
	}

	srv.hub.Publish(updateFor("GHOST", 10, []string{"price"}))
	var upd UpdateMsg
	c.expect(&upd, "UPDATE", 2*time.Second)
	if upd.Symbol != "GHOST" {
		t.Fatalf("update symbol = %q, want GHOST", upd.Symbol)
	}
}

func TestWS_SettingsChangeIsPushed(t *testing.T) {
	srv, c, ts := newWSFixture(t)
	srv.settings = config.NewThresholdStore(config.Thresholds{
		GapPct: 2.0, RSIOverbought: 70, RSIOversold: 30,
		CooldownSeconds: 300, RiskPct: 0.05, RewardPct: 0.05,
	})

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings",
		strings.NewReader(`{"gapPct": 4.0}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT settings: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}

	var msg SettingsMsg
	c.expect(&msg, "SETTINGS", 2*time.Second)
	if msg.Settings.GapPct != 4.0 {
		t.Errorf("pushed gapPct = %v, want 4.0", msg.Settings.GapPct)
	}
}
