// Command gencert writes a self-signed localhost certificate for the local
// HTTPS server. Extra hosts can be passed as arguments.
package main

import (
	"flag"
	"log"

	"krayotmarket/internal/tlsutil"
)

func main() {
	certPath := flag.String("cert", "localhost.crt", "certificate output path")
	keyPath := flag.String("key", "localhost.key", "private key output path")
	flag.Parse()

	s, err := tlsutil.Generate(flag.Args()...)
	if err != nil {
		log.Fatalf("Certificate could not be created: %v", err)
	}
	if err := s.WriteFiles(*certPath, *keyPath); err != nil {
		log.Fatalf("Certificate could not be written: %v", err)
	}
	log.Printf("SSL certificate written: %s and %s", *certPath, *keyPath)
}
