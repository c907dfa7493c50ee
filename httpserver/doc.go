// Package httpserver is a minimal coroutine-native HTTP/1.x request
// handler sitting on top of package tcp: one request per connection,
// parsed from a fixed-size buffer and dispatched to a method+path
// router, mirroring the reference HttpServer's RegisterHttpRequestHandler
// surface.
package httpserver
