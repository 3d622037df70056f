package mocks

//go:generate mockery --name RecordStore --srcpkg github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name PrimarySource --srcpkg github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/analytics --output ./analytics --outpkg analyticsmocks --with-expecter
//go:generate mockery --name FallbackSource --srcpkg github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/analytics --output ./analytics --outpkg analyticsmocks --with-expecter
