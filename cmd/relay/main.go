// Command relay runs a lossy UDP forwarder in front of a trellis
// server, for exercising retry and reassembly behavior against real
// packet loss during manual testing. It is a debugging aid, not part
// of the library.
package main

import (
	"flag"
	"log"

	"github.com/apples/trellis/internal/lossy"
)

func main() {
	target := flag.String("target", "127.0.0.1:9000", "address of the real server to relay to")
	dropPct := flag.Float64("drop", 25, "percent chance of dropping a datagram in each direction")
	flag.Parse()

	r, err := lossy.New(*target, *dropPct/100)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}
	defer r.Close()

	log.Printf("relay: listening on %s, forwarding to %s, dropping %.1f%% each way", r.Addr(), *target, *dropPct)
	r.Serve()
	select {}
}
