package main

import (
	"flag"
	"log"
	"os"
)

var addrfd = flag.Int("addrfd", -1, "file descriptor on which to print the listening address, for use by a supervising process")

// writeAddrFD communicates the listening address addr to a supervising
// process via the file descriptor number passed to -addrfd, if any.
func writeAddrFD(addr string) {
	if *addrfd == -1 {
		return
	}
	f := os.NewFile(uintptr(*addrfd), "")
	if _, err := f.Write([]byte(addr)); err != nil {
		log.Fatal(err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}
}
