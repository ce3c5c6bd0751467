package pjlink

import (
	"log"
	"os"
)

// logger is the package-wide diagnostic logger, used by Connection and
// Projector for events a caller has no other way to observe: background
// connect failures, read/write failures, unsolicited frames, a start
// failure ignored under AllowFailure, stop timeouts. Idle closes are not
// logged.
var logger = log.New(os.Stderr, "pjlink: ", log.LstdFlags)
