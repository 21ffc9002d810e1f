// zmtpecho is an end-to-end example: a ZMTP v3 echo server and client over
// TCP, wired from reactor.Reactor, zmtpengine.Engine and
// session.MemorySession, the same three collaborators spec.md names as
// external (§6.2).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/atsika/zmtpengine"
	"github.com/atsika/zmtpengine/reactor"
	"github.com/atsika/zmtpengine/session"
	"github.com/atsika/zmtpengine/wire"
)

// engineHandle defers reactor.Handlers to an Engine constructed after the
// Reactor itself, breaking the Reactor/Engine construction cycle (a
// Reactor needs Handlers up front, an Engine needs its Transport up
// front).
type engineHandle struct{ eng *zmtpengine.Engine }

func (h *engineHandle) Readable()       { h.eng.Readable() }
func (h *engineHandle) Writable()       { h.eng.Writable() }
func (h *engineHandle) TimerFired(id int) { h.eng.TimerFired(id) }

func main() {
	listenFlag := flag.String("listen", "", "listen address (runs as a ROUTER-style echo server)")
	dialFlag := flag.String("dial", "", "dial address (runs as a DEALER-style echo client)")
	identityFlag := flag.String("identity", "", "ZMTP identity to present")
	heartbeatFlag := flag.Duration("heartbeat", 5*time.Second, "HEARTBEAT_IVL; 0 disables heartbeats")
	flag.Usage = printUsage
	flag.Parse()

	switch {
	case *listenFlag != "":
		runServer(*listenFlag, *identityFlag, *heartbeatFlag)
	case *dialFlag != "":
		runClient(*dialFlag, *identityFlag, *heartbeatFlag)
	default:
		printUsage()
		os.Exit(2)
	}
}

func runServer(addr, identity string, heartbeat time.Duration) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	log.Printf("[zmtpecho] listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("accept: %v", err)
			continue
		}
		go serveConn(conn, identity, heartbeat)
	}
}

func serveConn(conn net.Conn, identity string, heartbeat time.Duration) {
	log.Printf("[zmtpecho] %s connected", conn.RemoteAddr())
	sess := session.NewMemorySession(256, 256, nil)
	sess.OnError(func(connectReached bool, kind session.ErrorKind, reason error) {
		log.Printf("[zmtpecho] %s engine error (connect_reached=%v, kind=%v): %v", conn.RemoteAddr(), connectReached, kind, reason)
	})

	handle := &engineHandle{}
	r := reactor.New(conn, handle)

	eng, err := zmtpengine.NewEngine(r, sess,
		zmtpengine.WithMechanism(zmtpengine.MechanismNull),
		zmtpengine.WithAsServer(true),
		zmtpengine.WithSocketType("ROUTER"),
		zmtpengine.WithIdentity([]byte(identity)),
		zmtpengine.WithHeartbeat(heartbeat, heartbeat, heartbeat*2),
	)
	if err != nil {
		log.Printf("new engine: %v", err)
		conn.Close()
		return
	}
	handle.eng = eng

	r.Start()
	if err := eng.Plug(); err != nil {
		log.Printf("plug: %v", err)
		return
	}

	// Echo loop: read everything pushed to the application side and send
	// it straight back out, giving RestartOutput the speculative write it
	// expects after a session-side Send (§4.3).
	for {
		m, ok := sess.Recv()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if m.Identity() || m.Credential() {
			continue
		}
		if !sess.Send(m) {
			log.Printf("[zmtpecho] %s application pipe full, dropping echo", conn.RemoteAddr())
			continue
		}
		eng.RestartOutput()
	}
}

func runClient(addr, identity string, heartbeat time.Duration) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	fmt.Printf("[zmtpecho] connected to %s\n", conn.RemoteAddr())

	sess := session.NewMemorySession(256, 256, nil)
	sess.OnError(func(connectReached bool, kind session.ErrorKind, reason error) {
		log.Printf("[zmtpecho] engine error (connect_reached=%v, kind=%v): %v", connectReached, kind, reason)
	})

	handle := &engineHandle{}
	r := reactor.New(conn, handle)

	eng, err := zmtpengine.NewEngine(r, sess,
		zmtpengine.WithMechanism(zmtpengine.MechanismNull),
		zmtpengine.WithAsServer(false),
		zmtpengine.WithSocketType("DEALER"),
		zmtpengine.WithIdentity([]byte(identity)),
		zmtpengine.WithHeartbeat(heartbeat, heartbeat, heartbeat*2),
	)
	if err != nil {
		log.Fatalf("new engine: %v", err)
	}
	handle.eng = eng

	r.Start()
	if err := eng.Plug(); err != nil {
		log.Fatalf("plug: %v", err)
	}

	go func() {
		for {
			m, ok := sess.Recv()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			if m.Identity() || m.Credential() {
				continue
			}
			fmt.Printf("< %s\n", m.Body)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !sess.Send(wire.Msg{Body: scanner.Bytes()}) {
			log.Println("[zmtpecho] outbound pipe full, dropping line")
			continue
		}
		eng.RestartOutput()
	}
	fmt.Println("[zmtpecho] client stopped")
}

func printUsage() {
	fmt.Println("zmtpecho - ZMTP v3 echo server/client")
	fmt.Println("Usage:")
	fmt.Println("  zmtpecho -listen :5555 [-identity NAME] [-heartbeat 5s]")
	fmt.Println("  zmtpecho -dial localhost:5555 [-identity NAME] [-heartbeat 5s]")
}
