// Parses flags and configures logging for the camd daemon.
//
// The daemon accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-p, --port      Command port number.
//	-b, --broker    Site registry broker URL.
//	-c, --camera    Camera backend name.
//	    --spool     Image spool file path.
//
// Flags can also be supplied through the environment (CAMD_PORT and
// friends), loaded from an env file at startup. After parsing, the global
// logger is reconfigured to reflect the final level and verbosity before
// the server starts.
package cli
