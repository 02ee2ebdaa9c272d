// Package azsb implements Producer/Consumer against Azure Service Bus via
// Azure/azure-sdk-for-go/sdk/messaging/azservicebus. Authentication prefers
// a connection string when set and falls back to
// azidentity.NewDefaultAzureCredential against Namespace otherwise. Dead
// lettering uses the queue's own sub-queue (DeadLetterMessage) rather than
// an app-level republish, and session IDs (WithMessageGroupID) give FIFO
// ordering within a session the way Service Bus sessions are meant to be
// used.
package azsb
