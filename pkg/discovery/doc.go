// Package discovery implements the Emotiva LAN protocol's broadcast
// discovery exchange: an emotivaPing is broadcast on the discover-request
// port, and the first matching emotivaTransponder reply is parsed into a
// DeviceDescriptor. Retries use exponential backoff with jitter.
package discovery
