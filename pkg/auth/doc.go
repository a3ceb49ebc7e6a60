// Package auth stores WebDAV credentials outside the configuration file.
//
// A Manager tries the system keychain first, then an encrypted file under
// the user config directory, then DAVMIGRATE_WEBDAV_USERNAME and
// DAVMIGRATE_WEBDAV_PASSWORD.
package auth
