// Package server implements the camd acquisition daemon.
//
// The daemon listens on a TCP port for persistent client connections
// speaking a line-oriented text protocol: one command per line, one
// response per command, each response starting with a pass (".") or
// fail ("!") marker. A successful image request answers with the byte
// count of the encoded FITS container and then switches the connection
// to binary framing, streaming exactly that many bytes in bounded
// chunks before reverting to text mode.
//
// Commands mutate the shared device session (exposure time, gain) or
// run an acquisition; session parameter changes are persisted to the
// site registry. Disconnect keywords produce an empty response, which
// the connection layer takes as the signal to close the session.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    Port:     9160,
//	    Device:   dev,
//	    Registry: reg,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
