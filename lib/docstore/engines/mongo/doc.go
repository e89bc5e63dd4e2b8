// Package mongo implements the docstore engine on MongoDB using the official
// v2 Go driver.
//
// Open builds a connection string of the form
//
//	mongodb://[user:pass@]host:port/database?option=value&...
//
// from the resolved ConnectOptions, connects and pings the primary. Credential
// keys (user, pass, username, password) in the option map are ignored, the
// credentials travel in the user info part only.
//
// Every collection stores documents of the shape
//
//	{_id: ObjectID, key: <any>, value: <any>, created_at: Date, updated_at: Date}
//
// with an index on key and, when a TTL is configured, an expireAfterSeconds
// index on the updated-at field. Expiry is left to the server's TTL monitor,
// so documents can outlive their deadline by up to a minute.
//
// The conformance tests in this package run against a live server and are
// skipped unless DOCKV_TEST_MONGO_HOST (and optionally DOCKV_TEST_MONGO_PORT,
// DOCKV_TEST_MONGO_USERNAME, DOCKV_TEST_MONGO_PASSWORD) is set.
package mongo
