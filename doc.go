/*
Asynchronous SFTP client.

Package asftp layers a callback-free async API over a blocking SFTP
session library.  Calls never block the caller: each returns a chan that
resolves exactly once, with either a payload or a structured *Error.

The underlying protocol session tolerates only one in-flight call, so a
Connection runs all protocol i/o on a single worker goroutine and admits
at most one operation at a time - a second concurrent request fails
immediately with KindOperationInProgress.  Results and progress callbacks
run on a separate delivery goroutine, never on the worker.

	conn, err := asftp.NewConnection("host", "user", "secret")
	if err != nil { ... }
	if err = <-conn.Connect(); err != nil { ... }
	defer conn.Disconnect()

	res := <-conn.Download("/remote/big.dat", "/tmp/big.dat",
		func(done, total uint64) bool {
			fmt.Printf("\r%d/%d", done, total)
			return true // false cancels at the next chunk
		})
	if res.Err != nil { ... }
*/
package asftp
