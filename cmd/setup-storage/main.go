// Command setup-storage creates the statement upload bucket. It is a
// one-shot provisioning step; running it against an existing bucket is a
// no-op.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

var (
	projectID = flag.String("project", os.Getenv("GCP_PROJECT_ID"), "GCP project ID (required, or set GCP_PROJECT_ID)")
	bucket    = flag.String("bucket", "statements", "bucket name to create")
	location  = flag.String("location", "US", "bucket location")
)

func main() {
	flag.Parse()

	if *projectID == "" {
		log.Fatal("Error: -project flag (or GCP_PROJECT_ID) is required.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	defer client.Close()

	attrs := &storage.BucketAttrs{
		Location: *location,
		// Statement files are private user data. Keep public access
		// impossible at the bucket level.
		PublicAccessPrevention: storage.PublicAccessPreventionEnforced,
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{
			Enabled: true,
		},
	}

	err = client.Bucket(*bucket).Create(ctx, *projectID, attrs)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 409 {
			log.Printf("Bucket %q already exists, nothing to do", *bucket)
			return
		}
		log.Fatalf("Failed to create bucket %q: %v", *bucket, err)
	}

	log.Printf("Created bucket %q in %s (public access prevented)", *bucket, *location)
}
