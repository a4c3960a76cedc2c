// Package remotestorage uploads chat attachments to remote object stores and
// downloads, classifies and caches remote media for display.
//
// Service is the only entry point. It routes every request to one of two
// variants by the resource host: URLs on the media host go to the Media
// variant (signed, time-limited URLs, PUT uploads), everything else to the
// Files variant (public URLs, presigned POST uploads).
//
// Downloads are coalesced per (URL, quality): concurrent requests for the same
// resource share one network transfer and one result. Uploads go through a
// FIFO queue that runs at most one transfer at a time and drops items whose
// session ended before they started.
//
// Callbacks are always run through the Executor the caller passes in.
package remotestorage
