package bus

import (
	"context"
	"errors"
	"net"
	"testing"

	"frc/internal/log"
	"frc/internal/pprz"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix, class, name string
		want                string
		wantErr             bool
	}{
		{"pprz", "ground", "DL_SETTING", "pprz.ground.DL_SETTING", false},
		{"pprz", "datalink", "GUIDED_SETPOINT_NED", "pprz.datalink.GUIDED_SETPOINT_NED", false},
		{"lab", "ground", "JUMP_TO_BLOCK", "lab.ground.JUMP_TO_BLOCK", false},
		{"pprz", "", "GPS", "", true},
		{"pprz", "telemetry", "GPS.INT", "", true},
		{"pprz", "telemetry", "*", "", true},
		{"pp rz", "telemetry", "GPS", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := Subject(tt.prefix, tt.class, tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSubject) {
					t.Errorf("expected ErrInvalidSubject, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Subject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTelemetrySubject(t *testing.T) {
	if got := TelemetrySubject(DefaultPrefix); got != "pprz.telemetry.>" {
		t.Errorf("TelemetrySubject() = %q", got)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil client: %v", err)
	}
}

// deadURL returns a bus URL with nothing listening on it.
func deadURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return "nats://" + addr
}

func TestConnectWithoutServer(t *testing.T) {
	c, err := Connect(Config{URL: deadURL(t), Name: "test"}, log.Discard())
	if err != nil {
		t.Fatalf("Connect with no server should succeed, got %v", err)
	}

	msg := pprz.New(pprz.ClassGround, "JUMP_TO_BLOCK").Set("ac_id", 3).Set("block_id", 1)
	msg.ACID = 3
	if err := c.Publish(context.Background(), msg); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish while disconnected: expected ErrNotConnected, got %v", err)
	}
	if err := c.Subscribe(func([]byte) {}); err != nil {
		t.Errorf("Subscribe while disconnected: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestConnectRejectsBadPrefix(t *testing.T) {
	_, err := Connect(Config{URL: deadURL(t), Prefix: "pp.rz"}, log.Discard())
	if !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}
