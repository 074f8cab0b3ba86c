// Package mail renders and delivers the platform's transactional email:
// one-time codes, password reset links, generic markdown notifications, admin
// invite outcomes and test mail.
//
// Delivery goes through a [Transport] (SMTP, SendGrid, or a log-only
// transport for development). [Sender] wraps a transport with a bounded retry
// loop: a fixed number of attempts with a doubling delay, abandoned early if
// the context ends.
package mail
