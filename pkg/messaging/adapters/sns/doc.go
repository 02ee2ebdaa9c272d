// Package sns implements Producer against AWS SNS via
// aws-sdk-go-v2/service/sns. SNS is a fan-out topic with no pull surface of
// its own, so this package's Consumer returns NotImplementedError from every
// receiving method: subscribers receive via their
// own protocol endpoint (SQS, HTTP, Lambda), outside this module's scope.
package sns
