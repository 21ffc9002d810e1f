package zapauth

import (
	"net"
	"testing"
)

func TestChannelHandshakeAndRequestReplyRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	serverCh := make(chan *Channel, 1)
	serverErr := make(chan error, 1)
	go func() {
		ch, err := AcceptChannel(serverConn)
		if err != nil {
			serverErr <- err
			return
		}
		serverCh <- ch
	}()

	client, err := DialChannel(clientConn)
	if err != nil {
		t.Fatalf("dial channel: %v", err)
	}

	var server *Channel
	select {
	case server = <-serverCh:
	case err := <-serverErr:
		t.Fatalf("accept channel: %v", err)
	}

	go func() {
		req, err := server.ReadRequest()
		if err != nil {
			t.Errorf("server read request: %v", err)
			return
		}
		if req.Mechanism != "PLAIN" {
			t.Errorf("unexpected mechanism %q", req.Mechanism)
		}
		_ = server.WriteReply(Reply{RequestID: req.RequestID, StatusCode: StatusAllow, UserID: "alice-id"})
	}()

	if err := client.WriteRequest(Request{RequestID: "r1", Mechanism: "PLAIN", Credentials: [][]byte{[]byte("alice"), []byte("s3cret")}}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply, err := client.ReadReply()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.StatusCode != StatusAllow || reply.UserID != "alice-id" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
