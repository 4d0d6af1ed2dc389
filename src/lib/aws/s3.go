package aws

import (
	"context"
	"log"
	"os"
	"time"

	"cbs/src/lib"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3PresignReviewDocumentUpload hands the coach a short-lived PUT URL for a
// review document; the object key becomes the booking's review_document_url
// source of truth.
func S3PresignReviewDocumentUpload(key string, contentType string) (*string, error) {
	bucket := os.Getenv("S3_REVIEWS_BUCKET")
	client := lib.AWSGetS3Client()
	if client == nil || bucket == "" {
		return nil, os.ErrNotExist
	}
	pre := s3.NewPresignClient(client)
	r, err := pre.PresignPutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(po *s3.PresignOptions) {
		po.Expires = time.Duration(900 * time.Second)
	})
	if err != nil {
		log.Printf("Could not generate presigned upload URL for object [%s]: %s\n", key, err.Error())
		return nil, err
	}
	return &r.URL, nil
}

// S3PresignObjectDownload returns a time-limited GET URL for a stored object.
func S3PresignObjectDownload(key string) (*string, error) {
	bucket := os.Getenv("S3_REVIEWS_BUCKET")
	client := lib.AWSGetS3Client()
	if client == nil || bucket == "" {
		return nil, os.ErrNotExist
	}
	pre := s3.NewPresignClient(client)
	r, err := pre.PresignGetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = time.Duration(3600 * time.Second)
	})
	if err != nil {
		log.Printf("Could not generate presigned URL for object [%s]: %s\n", key, err.Error())
		return nil, err
	}
	return &r.URL, nil
}
