// Package qbusiness indexes documents into an Amazon Q Business custom
// data source.
//
// Every upload and delete is tagged with the data source sync job's
// execution id. Document access is mapped onto the service's access
// configuration with OR semantics: any listed user or group may read.
package qbusiness
